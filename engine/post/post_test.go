package post

import "testing"

func TestPost(t *testing.T) {
	var a int
	Post(func() {
		a = 1
	})
	Tick()
	if a != 1 {
		t.Errorf("t should be 1")
	}
}

func TestPostFromCallback(t *testing.T) {
	var order []int
	Post(func() {
		order = append(order, 1)
		Post(func() {
			order = append(order, 2)
		})
	})
	Tick()
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("wrong order: %v", order)
	}
}
