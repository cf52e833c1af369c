package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func TestIDGeneration(t *testing.T) {
	photoID, err := NewPhotoID()
	if err != nil {
		t.Fatalf("Failed to generate photo ID: %v", err)
	}
	if !strings.HasPrefix(photoID, "PH-") {
		t.Errorf("Photo ID should start with PH-, got %s", photoID)
	}
	if len(strings.TrimPrefix(photoID, "PH-")) != 12 {
		t.Errorf("Nanoid portion should be 12 characters")
	}

	evtID, err := NewEventID()
	if err != nil {
		t.Fatalf("Failed to generate event ID: %v", err)
	}
	if !strings.HasPrefix(evtID, "EVT-") {
		t.Errorf("Event ID should start with EVT-, got %s", evtID)
	}
}

func TestPhotoIDCollisionResistance(t *testing.T) {
	// Same name and size must still yield distinct identities.
	ids := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		id, err := NewPhotoID()
		if err != nil {
			t.Fatalf("Failed to generate ID: %v", err)
		}
		if ids[id] {
			t.Fatalf("Collision detected after %d iterations: %s", i, id)
		}
		ids[id] = true
	}
}

func TestParseDeviceType(t *testing.T) {
	for _, d := range DeviceTypes {
		got, err := ParseDeviceType(string(d))
		if err != nil || got != d {
			t.Errorf("ParseDeviceType(%q) = %q, %v", d, got, err)
		}
	}
	if _, err := ParseDeviceType("Toaster"); err == nil {
		t.Error("expected error for unknown device type")
	}
}

func TestParsePriority(t *testing.T) {
	if p, err := ParsePriority("Urgent"); err != nil || p != PriorityUrgent {
		t.Errorf("ParsePriority(Urgent) = %q, %v", p, err)
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Error("priority values are case sensitive")
	}
}

func TestNewFormData(t *testing.T) {
	form := NewFormData()
	if form.Priority != PriorityMedium {
		t.Errorf("default priority = %q, want Medium", form.Priority)
	}
	if form.DeviceType.IsSet() {
		t.Error("device type should start unset")
	}
	if len(form.Photos) != 0 {
		t.Error("photos should start empty")
	}
}

func TestFormDataCloneIsDeep(t *testing.T) {
	form := NewFormData()
	form.Photos = append(form.Photos, Photo{ID: "PH-1", Name: "a.jpg"})

	clone := form.Clone()
	clone.Photos[0].Name = "changed.jpg"
	clone.Photos = append(clone.Photos, Photo{ID: "PH-2"})

	if form.Photos[0].Name != "a.jpg" || len(form.Photos) != 1 {
		t.Errorf("clone mutated original: %+v", form.Photos)
	}
}

func TestFormDataMarshaling(t *testing.T) {
	form := FormData{
		DeviceType:  DeviceSmartphone,
		Description: "Screen cracked after a drop",
		Priority:    PriorityHigh,
		Address:     "12 Mabini St",
		ContactInfo: "+1 (555) 123-4567",
		Photos:      []Photo{{ID: "PH-1", Name: "crack.jpg", Size: 42, ContentType: "image/jpeg", Data: []byte("xx")}},
	}

	data, err := json.Marshal(form)
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	if strings.Contains(string(data), "eHg=") {
		t.Error("photo bytes must not be serialised")
	}

	var decoded FormData
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal json: %v", err)
	}
	form.Photos[0].Data = nil
	if diff := cmp.Diff(form, decoded); diff != "" {
		t.Errorf("json round trip mismatch (-want +got):\n%s", diff)
	}

	out, err := yaml.Marshal(form)
	if err != nil {
		t.Fatalf("marshal yaml: %v", err)
	}
	if !strings.Contains(string(out), "device_type: Smartphone") {
		t.Errorf("unexpected yaml:\n%s", out)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Fan is noisy", "Fan is noisy"},
		{"keeps ampersand", "Tom & Jerry", "Tom & Jerry"},
		{"strips markup", "<b>Screen</b> broken<script>alert(1)</script>", "Screen broken"},
		{"keeps comparison", "battery < 10%", "battery < 10%"},
		{"keeps trailing space", "typing ", "typing "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
