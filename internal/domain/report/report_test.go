package report

import "testing"

func TestRequiredParamsAndScopeCoverSameCodes(t *testing.T) {
	for code := range scopeForCode {
		if _, ok := requiredParams[code]; !ok {
			t.Fatalf("report code %q has a scope but no required-params entry", code)
		}
	}
	for code := range requiredParams {
		if _, ok := scopeForCode[code]; !ok {
			t.Fatalf("report code %q has required params but no scope entry", code)
		}
	}
}
