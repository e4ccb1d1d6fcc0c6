package route

import "testing"

func TestNew(t *testing.T) {
	d := New(true, []string{"k8s-runbooks"}, "operational question")
	if !d.NeedsRetrieval() {
		t.Error("NeedsRetrieval() = false")
	}
	if len(d.TargetBases()) != 1 || d.TargetBases()[0] != "k8s-runbooks" {
		t.Errorf("TargetBases() = %v", d.TargetBases())
	}
	if d.Reasoning() != "operational question" {
		t.Errorf("Reasoning() = %q", d.Reasoning())
	}
}

func TestNew_NoRetrieval(t *testing.T) {
	d := New(false, nil, "greeting")
	if d.NeedsRetrieval() {
		t.Error("NeedsRetrieval() = true")
	}
}

func TestSafeDefault(t *testing.T) {
	d := SafeDefault("classifier unavailable")
	if !d.NeedsRetrieval() {
		t.Error("SafeDefault must retrieve")
	}
	if len(d.TargetBases()) != 0 {
		t.Errorf("SafeDefault TargetBases() = %v, want empty (all bases)", d.TargetBases())
	}
	if d.Reasoning() != "classifier unavailable" {
		t.Errorf("Reasoning() = %q", d.Reasoning())
	}
}
