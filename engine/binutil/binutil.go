package binutil

import (
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/natefinch/lumberjack"

	"github.com/mirrorworlds/worldmesh/engine/wmlog"
)

// SetupHTTPServer starts the HTTP server for go tool pprof
func SetupHTTPServer(ip string, port int) {
	if port == 0 {
		// pprof not enabled
		wmlog.Infof("pprof server not enabled")
		return
	}

	httpHost := fmt.Sprintf("%s:%d", ip, port)
	wmlog.Infof("http server listening on %s", httpHost)
	wmlog.Infof("pprof http://%s/debug/pprof/ ... available commands: ", httpHost)
	wmlog.Infof("    go tool pprof http://%s/debug/pprof/heap", httpHost)
	wmlog.Infof("    go tool pprof http://%s/debug/pprof/profile", httpHost)

	go func() {
		http.ListenAndServe(httpHost, nil)
	}()
}

// SetupWMLog setup the worldmesh log system
func SetupWMLog(component string, logLevel string, logFile string, logStderr bool) {
	wmlog.SetSource(component)
	wmlog.Infof("Set log level to %s", logLevel)
	wmlog.SetLevel(wmlog.StringToLevel(logLevel))

	outputWriters := make([]io.Writer, 0, 2)
	if logFile != "" {
		logFileWriter := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 100,
			MaxAge:     30, //days
			Compress:   true,
		}

		logFileWriter.Rotate() // rotate immediately
		outputWriters = append(outputWriters, logFileWriter)
	}

	if logStderr {
		outputWriters = append(outputWriters, os.Stderr)
	}

	if len(outputWriters) == 1 {
		wmlog.SetOutput(outputWriters[0])
	} else if len(outputWriters) > 1 {
		wmlog.SetOutput(io.MultiWriter(outputWriters...))
	}
}
