package netutil

import (
	"fmt"
	"io"
	"net"
	"reflect"

	"github.com/pkg/errors"

	"github.com/mirrorworlds/worldmesh/engine/wmlog"
	"github.com/mirrorworlds/worldmesh/engine/wmutils"
)

// IsConnectionError check if the error is a connection error (close)
func IsConnectionError(_err interface{}) bool {
	err, ok := _err.(error)
	if !ok {
		return false
	}

	err = errors.Cause(err)
	if err == io.EOF {
		return true
	}

	neterr, ok := err.(net.Error)
	if !ok {
		return false
	}
	if neterr.Timeout() {
		return false
	}

	return true
}

// ConnectTCP connects to host:port in TCP
func ConnectTCP(host string, port int) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.Dial("tcp", addr)
	return conn, err
}

// ServeForever runs the function with arguments forever
//
// ServeForever will restart the function call if the function panics
func ServeForever(f interface{}, args ...interface{}) {
	fval := reflect.ValueOf(f)
	argscount := len(args)
	argVals := make([]reflect.Value, argscount)
	for i := 0; i < argscount; i++ {
		argVals[i] = reflect.ValueOf(args[i])
	}

	for {
		runServe(fval, argVals)
	}
}

func runServe(fval reflect.Value, argVals []reflect.Value) {
	wmutils.RunPanicless(func() {
		rets := fval.Call(argVals)
		if len(rets) == 1 {
			err := rets[0].Interface()
			if err != nil {
				wmlog.TraceError("ServeForever: func quit with error: %v", err)
			}
		}
	})
}
