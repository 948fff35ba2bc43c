package imagegen

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Response fields probed for images, in order, and the keys probed inside each item.
var (
	imageListFields = []string{"predictions", "artifacts", "images", "data"}
	imageItemKeys   = []string{"bytesBase64Encoded", "base64", "b64", "b64_json", "image"}
)

// decodeImages extracts base64 images from the first non-empty list field of body.
// Items may be plain strings or objects holding one of imageItemKeys.
func decodeImages(body []byte, fields ...string) ([][]byte, error) {
	if len(fields) == 0 {
		fields = imageListFields
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("imagegen: decode response: %w", err)
	}

	for _, f := range fields {
		items, ok := obj[f].([]any)
		if !ok || len(items) == 0 {
			continue
		}
		var out [][]byte
		for _, it := range items {
			b64 := itemBase64(it)
			if b64 == "" {
				continue
			}
			img, err := decodeBase64(b64)
			if err != nil {
				return nil, fmt.Errorf("imagegen: %s: %w", f, err)
			}
			out = append(out, img)
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, ErrNoImages
}

func itemBase64(it any) string {
	switch v := it.(type) {
	case string:
		return v
	case map[string]any:
		for _, k := range imageItemKeys {
			if s, ok := v[k].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// decodeBase64 accepts padded or unpadded standard base64, with or without a data URI prefix.
func decodeBase64(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if _, rest, ok := strings.Cut(s, ","); ok {
			s = rest
		}
	}
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// EncodeImages renders images as the predictions list returned to clients.
func EncodeImages(images [][]byte) []Prediction {
	out := make([]Prediction, 0, len(images))
	for _, img := range images {
		out = append(out, Prediction{BytesBase64Encoded: base64.StdEncoding.EncodeToString(img)})
	}
	return out
}

// Prediction is one image in a response body.
type Prediction struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
}
