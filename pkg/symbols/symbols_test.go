package symbols

import "testing"

func has(syms []Symbol, name string, kind Kind) bool {
	for _, s := range syms {
		if s.Name == name && s.Kind == kind {
			return true
		}
	}
	return false
}

func TestDetectFunction(t *testing.T) {
	syms := Detect("fn compute_total() {\n    return 0;\n}", 10)
	if !has(syms, "compute_total", KindFunction) {
		t.Errorf("expected compute_total function symbol, got %+v", syms)
	}
	if syms[0].Line != 10 {
		t.Errorf("expected symbol line to be absolute, got %d", syms[0].Line)
	}
}

func TestDetectClass(t *testing.T) {
	syms := Detect("class MyClass:\n    pass", 1)
	if !has(syms, "MyClass", KindClass) {
		t.Errorf("expected MyClass class symbol, got %+v", syms)
	}
}

func TestDetectImport(t *testing.T) {
	syms := Detect("import os\nfrom typing import List", 1)
	found := false
	for _, s := range syms {
		if s.Kind == KindImport {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an import symbol, got %+v", syms)
	}
}

func TestDetectSQL(t *testing.T) {
	syms := Detect("SELECT * FROM users WHERE id = 1", 1)
	if !has(syms, "SELECT", KindSQL) {
		t.Errorf("expected SELECT sql symbol, got %+v", syms)
	}
}

func TestDetectRoute(t *testing.T) {
	syms := Detect(".get(\"/users\", handler)\n.post(\"/items\", handler)", 1)
	count := 0
	for _, s := range syms {
		if s.Kind == KindRoute {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected 2 route symbols, got %d (%+v)", count, syms)
	}
}

func TestLineOffsetIsAbsolute(t *testing.T) {
	syms := Detect("a\nb\nfunc third() {}", 100)
	if !has(syms, "third", KindFunction) {
		t.Fatalf("expected third function symbol, got %+v", syms)
	}
	for _, s := range syms {
		if s.Name == "third" && s.Line != 102 {
			t.Errorf("expected absolute line 102, got %d", s.Line)
		}
	}
}
