package brain

import "testing"

func TestAssess(t *testing.T) {
	c := NewRiskClassifier()

	cases := []struct {
		name      string
		text      string
		wantLevel AlertLevel
	}{
		{name: "neutral", text: "Hari ini saya jalan-jalan ke taman.", wantLevel: AlertGreen},
		{name: "distress", text: "Rasanya saya sudah putus asa dengan semuanya.", wantLevel: AlertYellow},
		{name: "self harm", text: "Kadang saya ingin melukai diri sendiri.", wantLevel: AlertOrange},
		{name: "suicidal", text: "Saya ingin mengakhiri hidup saya.", wantLevel: AlertRed},
		{name: "english crisis", text: "I just want to die.", wantLevel: AlertRed},
		{name: "uppercase", text: "SAYA INGIN MATI", wantLevel: AlertRed},
		{name: "red beats yellow", text: "Saya putus asa dan ingin bunuh diri.", wantLevel: AlertRed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Assess(tc.text)
			if got.Level != tc.wantLevel {
				t.Fatalf("Assess(%q).Level = %q, want %q (matched %q)", tc.text, got.Level, tc.wantLevel, got.Matched)
			}
			if tc.wantLevel != AlertGreen && got.Matched == "" {
				t.Fatalf("Assess(%q) matched nothing", tc.text)
			}
		})
	}
}

func TestAssessCrisisFlag(t *testing.T) {
	c := NewRiskClassifier()
	if c.Assess("semua baik-baik saja").Crisis() {
		t.Fatalf("green assessment flagged as crisis")
	}
	if !c.Assess("saya mau bunuh diri").Crisis() {
		t.Fatalf("red assessment not flagged as crisis")
	}
}

func TestCrisisResourcesNonEmpty(t *testing.T) {
	rs := CrisisResources()
	if len(rs) == 0 {
		t.Fatalf("no crisis resources configured")
	}
	for _, r := range rs {
		if r.Name == "" || r.Number == "" {
			t.Fatalf("incomplete resource: %+v", r)
		}
	}
}
