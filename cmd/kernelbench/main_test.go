package main

import "testing"

func TestMainWiring(t *testing.T) {
	origSetVersion := setVersionInfo
	origExecute := executeCmd
	t.Cleanup(func() {
		setVersionInfo = origSetVersion
		executeCmd = origExecute
	})

	var order []string
	setVersionInfo = func(v, c, d string) {
		order = append(order, "version")
		if v == "" || c == "" || d == "" {
			t.Fatalf("expected version info to be set")
		}
	}
	executeCmd = func() {
		order = append(order, "exec")
	}

	main()

	if len(order) != 2 || order[0] != "version" || order[1] != "exec" {
		t.Fatalf("expected version info before execute, got %v", order)
	}
}
