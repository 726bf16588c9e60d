package transactions

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mbd888/starledger/internal/anomaly"
	"github.com/mbd888/starledger/internal/api"
)

// ExtendedMedia is one item of paid media attached to a channel post.
// Implementations: MediaPreview, MediaPhoto, MediaVideo, MediaUnsupported.
type ExtendedMedia interface {
	extendedMedia()
}

// MediaPreview is a blurred placeholder shown before purchase.
type MediaPreview struct {
	Width         int32  `json:"width"`
	Height        int32  `json:"height"`
	Thumbnail     []byte `json:"minithumbnail,omitempty"`
	VideoDuration int32  `json:"duration,omitempty"`
}

// MediaPhoto is an unlocked photo.
type MediaPhoto struct {
	PhotoID int64 `json:"photo_id"`
	Width   int32 `json:"width,omitempty"`
	Height  int32 `json:"height,omitempty"`
}

// MediaVideo is an unlocked video.
type MediaVideo struct {
	DocumentID int64  `json:"document_id"`
	MimeType   string `json:"mime_type,omitempty"`
	Duration   int32  `json:"duration"`
	Width      int32  `json:"width,omitempty"`
	Height     int32  `json:"height,omitempty"`
}

// MediaUnsupported is media of a kind the client does not know.
type MediaUnsupported struct{}

func (MediaPreview) extendedMedia()     {}
func (MediaPhoto) extendedMedia()       {}
func (MediaVideo) extendedMedia()       {}
func (MediaUnsupported) extendedMedia() {}

func (m MediaPreview) MarshalJSON() ([]byte, error) {
	type plain MediaPreview
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{"preview", plain(m)})
}

func (m MediaPhoto) MarshalJSON() ([]byte, error) {
	type plain MediaPhoto
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{"photo", plain(m)})
}

func (m MediaVideo) MarshalJSON() ([]byte, error) {
	type plain MediaVideo
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{"video", plain(m)})
}

func (MediaUnsupported) MarshalJSON() ([]byte, error) {
	return []byte(`{"type":"unsupported"}`), nil
}

func convertMedia(ctx context.Context, raw []api.MessageExtendedMedia) []ExtendedMedia {
	if len(raw) == 0 {
		return nil
	}
	out := make([]ExtendedMedia, 0, len(raw))
	for _, m := range raw {
		out = append(out, convertMediaItem(ctx, m))
	}
	return out
}

func convertMediaItem(ctx context.Context, m api.MessageExtendedMedia) ExtendedMedia {
	switch m.Type {
	case api.ExtendedMediaPreview:
		return MediaPreview{Width: m.W, Height: m.H, Thumbnail: m.Thumb, VideoDuration: m.VideoDuration}
	case api.ExtendedMediaFull:
		if m.Media == nil {
			break
		}
		switch {
		case m.Media.Type == api.MediaTypePhoto && m.Media.Photo != nil:
			p := m.Media.Photo
			return MediaPhoto{PhotoID: p.ID, Width: p.W, Height: p.H}
		case m.Media.Type == api.MediaTypeDocument && m.Media.Document != nil && isVideo(m.Media.Document):
			d := m.Media.Document
			return MediaVideo{DocumentID: d.ID, MimeType: d.MimeType, Duration: d.Duration, Width: d.W, Height: d.H}
		}
	}
	anomaly.Report(ctx, anomaly.UnknownMediaType, "receive unsupported paid media", "type", m.Type)
	return MediaUnsupported{}
}

func isVideo(d *api.Document) bool {
	return d.Video || strings.HasPrefix(d.MimeType, "video/")
}
