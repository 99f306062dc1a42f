package schemas

// -- Device Observation Schemas --

// UnknownApp is reported when the foreground app cannot be determined.
const UnknownApp = "unknown"

// Screenshot is a captured frame of the device screen.
type Screenshot struct {
	Data   []byte `json:"-"`
	Format string `json:"format"` // png or jpeg
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// MIMEType returns the media type of the encoded frame.
func (s Screenshot) MIMEType() string {
	if s.Format == "jpeg" {
		return "image/jpeg"
	}
	return "image/png"
}

// Image converts the frame into a message attachment.
func (s Screenshot) Image() ImagePart {
	return ImagePart{Data: s.Data, MIMEType: s.MIMEType()}
}

// AppInfo names the foreground app.
type AppInfo struct {
	Package  string `json:"package"`
	Activity string `json:"activity"`
}

// Known reports whether the package was identified.
func (a AppInfo) Known() bool {
	return a.Package != "" && a.Package != UnknownApp
}

func (a AppInfo) String() string {
	if !a.Known() {
		return UnknownApp
	}
	if a.Activity == "" {
		return a.Package
	}
	return a.Package + "/" + a.Activity
}
