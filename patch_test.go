package blog

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rbaliyan/blog/store"
)

func TestFieldUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantSet  bool
		wantNull bool
		want     string
	}{
		{name: "absent", body: `{}`},
		{name: "null", body: `{"name":null}`, wantSet: true, wantNull: true},
		{name: "value", body: `{"name":"go"}`, wantSet: true, want: "go"},
		{name: "empty string", body: `{"name":""}`, wantSet: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p TagPatch
			if err := json.Unmarshal([]byte(tt.body), &p); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if p.Name.Set != tt.wantSet || p.Name.Null != tt.wantNull || p.Name.Value != tt.want {
				t.Errorf("got %+v", p.Name)
			}
		})
	}
}

func TestFieldUnmarshalRelations(t *testing.T) {
	var p PostPatch
	body := `{"id":4,"mode":null,"tags":[{"id":1},{"id":2}],"date":"2019-01-01T00:00:00Z"}`
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if patchID(p.ID) != 4 {
		t.Errorf("expected id 4, got %d", patchID(p.ID))
	}
	if !p.Mode.Null {
		t.Error("expected explicit null mode")
	}
	if len(p.Tags.Value) != 2 {
		t.Errorf("expected 2 tags, got %v", p.Tags.Value)
	}
	if p.Title.Set {
		t.Error("expected absent title")
	}
	if p.Date.Value.Year() != 2019 {
		t.Errorf("unexpected date %v", p.Date.Value)
	}
}

func TestFieldMarshal(t *testing.T) {
	p := TagPatch{ID: Value[int64](3), Name: Null[string]()}
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"id":3,"name":null}` {
		t.Errorf("unexpected json %s", b)
	}

	b, err = json.Marshal(TagPatch{ID: Value[int64](3)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"id":3}` {
		t.Errorf("expected absent name omitted, got %s", b)
	}
}

func TestModePatchApply(t *testing.T) {
	base := func() *store.Mode {
		return &store.Mode{ID: 1, Name: "journal", Handle: "jr", User: &store.User{ID: 2}}
	}

	t.Run("present fields overwrite", func(t *testing.T) {
		m := base()
		if err := (ModePatch{Handle: Value("new")}).Apply(m); err != nil {
			t.Fatalf("apply: %v", err)
		}
		if m.Handle != "new" || m.Name != "journal" || m.User.GetID() != 2 {
			t.Errorf("unexpected mode %+v", m)
		}
	})

	t.Run("null user clears it", func(t *testing.T) {
		m := base()
		if err := (ModePatch{User: Null[*store.User]()}).Apply(m); err != nil {
			t.Fatalf("apply: %v", err)
		}
		if m.User != nil {
			t.Errorf("expected user cleared, got %+v", m.User)
		}
	})

	t.Run("null required fields are reported together", func(t *testing.T) {
		m := base()
		err := (ModePatch{Name: Null[string](), Handle: Null[string]()}).Apply(m)
		if !errors.Is(err, ErrInvalidEntity) {
			t.Fatalf("expected ErrInvalidEntity, got %v", err)
		}
		if len(FieldErrors(err)) != 2 {
			t.Errorf("expected 2 field errors, got %v", FieldErrors(err))
		}
		if m.Name != "journal" {
			t.Errorf("expected name untouched, got %q", m.Name)
		}
	})
}
