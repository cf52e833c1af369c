package schema

// Field names accepted by SetField style updates.
const (
	FieldDeviceType     = "deviceType"
	FieldDeviceModel    = "deviceModel"
	FieldDescription    = "description"
	FieldPriority       = "priority"
	FieldAddress        = "address"
	FieldContactInfo    = "contactInfo"
	FieldPreferredDate1 = "preferredDate1"
	FieldPreferredDate2 = "preferredDate2"
	FieldPhotos         = "photos"
)

// Photo is a file attached to the request.
type Photo struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Size        int64  `json:"size" yaml:"size"`
	ContentType string `json:"contentType" yaml:"content_type"`
	Data        []byte `json:"-" yaml:"-"`
}

// FormData is the canonical record of everything the customer entered.
type FormData struct {
	DeviceType     DeviceType `json:"deviceType" yaml:"device_type"`
	DeviceModel    string     `json:"deviceModel" yaml:"device_model"`
	Description    string     `json:"description" yaml:"description"`
	Priority       Priority   `json:"priority" yaml:"priority"`
	Address        string     `json:"address" yaml:"address"`
	ContactInfo    string     `json:"contactInfo" yaml:"contact_info"`
	PreferredDate1 string     `json:"preferredDate1" yaml:"preferred_date_1"`
	PreferredDate2 string     `json:"preferredDate2" yaml:"preferred_date_2"`
	Photos         []Photo    `json:"photos" yaml:"photos"`
}

// NewFormData returns the initial form: nothing entered, priority Medium.
func NewFormData() FormData {
	return FormData{
		Priority: PriorityMedium,
		Photos:   []Photo{},
	}
}

// Clone returns a deep copy. Photo payloads are shared since they are never mutated.
func (f FormData) Clone() FormData {
	clone := f
	clone.Photos = make([]Photo, len(f.Photos))
	copy(clone.Photos, f.Photos)
	return clone
}

// PhotoIndex returns the position of the photo with the given id, or -1.
func (f FormData) PhotoIndex(id string) int {
	for i, p := range f.Photos {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// UploadProgress tracks one photo's transfer.
type UploadProgress struct {
	Progress int          `json:"progress" yaml:"progress"`
	Status   UploadStatus `json:"status" yaml:"status"`
	Error    string       `json:"error,omitempty" yaml:"error,omitempty"`
}

// UploadState maps photo ids to their transfer progress.
type UploadState map[string]UploadProgress

// Clone returns a copy of the map.
func (u UploadState) Clone() UploadState {
	clone := make(UploadState, len(u))
	for k, v := range u {
		clone[k] = v
	}
	return clone
}

// AllComplete reports whether every tracked upload has finished successfully.
func (u UploadState) AllComplete() bool {
	for _, p := range u {
		if p.Status != UploadComplete {
			return false
		}
	}
	return true
}
