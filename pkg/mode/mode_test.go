package mode

import "testing"

func TestStatic(t *testing.T) {
	tests := []struct {
		mode   string
		inEval bool
	}{
		{Dev, false},
		{Train, false},
		{Search, false},
		{Enjoy, true},
		{Eval, true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			q := Static(tt.mode)
			if q.LabMode() != tt.mode {
				t.Errorf("LabMode() = %q, want %q", q.LabMode(), tt.mode)
			}
			if q.InEval() != tt.inEval {
				t.Errorf("InEval() = %v, want %v", q.InEval(), tt.inEval)
			}
			if !Valid(tt.mode) {
				t.Errorf("Valid(%q) = false", tt.mode)
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvVar, "")
	q := FromEnv()
	if q.LabMode() != Train {
		t.Errorf("default LabMode() = %q, want %q", q.LabMode(), Train)
	}

	t.Setenv(EnvVar, Enjoy)
	if !q.InEval() {
		t.Error("InEval() = false after LAB_MODE=enjoy")
	}
}

func TestValidRejectsUnknown(t *testing.T) {
	if Valid("benchmark") {
		t.Error("Valid(benchmark) = true, want false")
	}
}
