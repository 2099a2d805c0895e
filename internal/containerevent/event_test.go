package containerevent

import (
	"errors"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	t.Parallel()
	meta := Metadata{ContainerID: "abc", Time: time.Unix(10, 0)}

	tests := []struct {
		action string
		want   string
	}{
		{"create", ActionCreate},
		{"start", ActionStart},
		{"die", ActionDie},
		{"destroy", ActionDestroy},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			t.Parallel()
			ev, err := Parse(tt.action, meta)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if ev.Action() != tt.want {
				t.Errorf("Action() = %q, want %q", ev.Action(), tt.want)
			}
			if ev.Meta().ContainerID != "abc" {
				t.Errorf("ContainerID not carried: %+v", ev.Meta())
			}
			if ev.Meta().Attributes == nil {
				t.Error("expected non-nil attributes")
			}
		})
	}
}

func TestParse_UnknownAction(t *testing.T) {
	t.Parallel()
	if _, err := Parse("exec_start", Metadata{}); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
}

func TestDied_ExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		attrs   Attributes
		want    int
		wantErr error
	}{
		{"zero", Attributes{"exitCode": "0"}, 0, nil},
		{"non-zero", Attributes{"exitCode": "137"}, 137, nil},
		{"missing", Attributes{}, 0, ErrMissingAttribute},
		{"malformed", Attributes{"exitCode": "oops"}, 0, ErrMalformedAttribute},
		{"empty", Attributes{"exitCode": ""}, 0, ErrMalformedAttribute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Died{Metadata{Attributes: tt.attrs}}
			got, err := d.ExitCode()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				var attrErr *AttributeError
				if !errors.As(err, &attrErr) || attrErr.Key != AttrExitCode {
					t.Errorf("expected *AttributeError for %q, got %v", AttrExitCode, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ExitCode() = %d, %v; want %d", got, err, tt.want)
			}
		})
	}
}

func TestMetadata_NameAndImage(t *testing.T) {
	t.Parallel()
	m := Metadata{Attributes: Attributes{"name": "web", "image": "nginx:1.27"}}

	if name, err := m.Name(); err != nil || name != "web" {
		t.Errorf("Name() = %q, %v", name, err)
	}
	if image, err := m.Image(); err != nil || image != "nginx:1.27" {
		t.Errorf("Image() = %q, %v", image, err)
	}
	if _, err := (Metadata{}).Name(); !errors.Is(err, ErrMissingAttribute) {
		t.Errorf("expected missing name error, got %v", err)
	}
}
