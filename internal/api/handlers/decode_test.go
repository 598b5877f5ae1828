package handlers

import (
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/your-org/faceid/internal/identity"
	"github.com/your-org/faceid/internal/models"
)

func TestParseFaceBox(t *testing.T) {
	tests := []struct {
		raw     string
		want    *models.Box
		wantErr bool
	}{
		{"", nil, false},
		{"  ", nil, false},
		{"[1,2,3,4]", &models.Box{X1: 1, Y1: 2, X2: 3, Y2: 4}, false},
		{`{"x1":5,"y1":6,"x2":70,"y2":80}`, &models.Box{X1: 5, Y1: 6, X2: 70, Y2: 80}, false},
		{"[1,2,3]", nil, true},
		{"1,2,3,4", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseFaceBox(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFaceBox(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Errorf("parseFaceBox(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDecodeBase64Image(t *testing.T) {
	raw := []byte{0xff, 0xd8, 0xff, 0xe0, 0x10}
	tests := []struct {
		name string
		in   string
	}{
		{"std", base64.StdEncoding.EncodeToString(raw)},
		{"raw std", base64.RawStdEncoding.EncodeToString(raw)},
		{"url", base64.URLEncoding.EncodeToString(raw)},
		{"data url", "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(raw)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeBase64Image(tt.in)
			if err != nil {
				t.Fatalf("decodeBase64Image() error = %v", err)
			}
			if string(got) != string(raw) {
				t.Errorf("decoded %v, want %v", got, raw)
			}
		})
	}

	for _, bad := range []string{"", "!!!", "data:image/png;base64"} {
		if _, err := decodeBase64Image(bad); err == nil {
			t.Errorf("decodeBase64Image(%q) error = nil", bad)
		}
	}
}

func TestStatusFor(t *testing.T) {
	want := map[identity.Kind]int{
		identity.KindValidation:          http.StatusBadRequest,
		identity.KindNoFace:              http.StatusUnprocessableEntity,
		identity.KindQuality:             http.StatusUnprocessableEntity,
		identity.KindDuplicateIdentifier: http.StatusConflict,
		identity.KindDuplicateFace:       http.StatusConflict,
		identity.KindNotFound:            http.StatusNotFound,
		identity.KindPersistence:         http.StatusInternalServerError,
		identity.KindSystem:              http.StatusInternalServerError,
	}
	for kind, status := range want {
		if got := StatusFor(kind); got != status {
			t.Errorf("StatusFor(%s) = %d, want %d", kind, got, status)
		}
	}
}
