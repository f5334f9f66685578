package audit

import (
	"strings"
	"testing"
)

func TestBuildBaseQueryNumbersPlaceholders(t *testing.T) {
	query, args := buildBaseQuery("SELECT COUNT(1)", "t1", Filter{Action: ActionDocumentSign, EntityID: "doc-1"})
	if !strings.Contains(query, "action = $2") || !strings.Contains(query, "entity_id = $3") {
		t.Fatalf("unexpected query: %s", query)
	}
	if len(args) != 3 || args[0] != "t1" || args[2] != "doc-1" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestMarshalStateNil(t *testing.T) {
	out, err := marshalState(nil)
	if err != nil || out != nil {
		t.Fatalf("expected nil payload, got %q %v", out, err)
	}
	out, err = marshalState(map[string]string{"status": "signed"})
	if err != nil || string(out) != `{"status":"signed"}` {
		t.Fatalf("unexpected payload %q %v", out, err)
	}
}
