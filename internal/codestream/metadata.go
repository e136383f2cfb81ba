package codestream

// Metadata carries the image-level fields the frame header depends on but
// does not serialise itself. It is parsed once per file by the container
// layer and borrowed by every frame.
type Metadata struct {
	XSize, YSize     int
	NumExtraChannels int

	// XYBEncoded marks files stored in the XYB colour space; such files
	// cannot reconstruct an original JPEG.
	XYBEncoded bool
}
