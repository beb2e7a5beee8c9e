package tools

import "testing"

func TestParsePytestSummary(t *testing.T) {
	output := `collected 5 items

test_auth.py::test_login PASSED
test_auth.py::test_logout FAILED
FAILED test_auth.py::test_logout - AssertionError: token not revoked

==== 3 passed, 1 failed, 1 skipped in 0.42s ====`

	metrics := map[string]int{}
	var issues []Issue
	parsePytestOutput(output, metrics, &issues)

	if metrics["passed"] != 3 || metrics["failed"] != 1 || metrics["skipped"] != 1 {
		t.Errorf("metrics = %v", metrics)
	}
	if len(issues) != 1 {
		t.Fatalf("issues = %v", issues)
	}
	if issues[0].Message != "FAILED test_auth.py::test_logout - AssertionError: token not revoked" {
		t.Errorf("issue = %q", issues[0].Message)
	}
}

func TestParsePytestSummaryErrors(t *testing.T) {
	output := "==== 2 passed, 1 error in 1.0s ===="
	metrics := map[string]int{}
	var issues []Issue
	parsePytestOutput(output, metrics, &issues)
	if metrics["passed"] != 2 || metrics["errors"] != 1 {
		t.Errorf("metrics = %v", metrics)
	}
}
