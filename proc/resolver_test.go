package proc

import (
	"errors"
	"testing"

	"github.com/selvany/otoha/node"
)

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"", "", ErrEmptyQuery},
		{"   ", "", ErrEmptyQuery},
		{"never gonna give you up", "ytsearch:never gonna give you up", nil},
		{"  padded query  ", "ytsearch:padded query", nil},
		{"https://youtu.be/dQw4w9WgXcQ", "https://youtu.be/dQw4w9WgXcQ", nil},
		{"http://example.com/a.mp3", "http://example.com/a.mp3", nil},
		{"ytsearch:already prefixed", "ytsearch:already prefixed", nil},
		{"ytmsearch:music search", "ytmsearch:music search", nil},
		{"scsearch:soundcloud thing", "scsearch:soundcloud thing", nil},
		// prefix detection is case-insensitive, input passes through untouched
		{"HTTPS://youtu.be/dQw4w9WgXcQ", "HTTPS://youtu.be/dQw4w9WgXcQ", nil},
		{"Http://example.com/a.mp3", "Http://example.com/a.mp3", nil},
		{"YTSEARCH:shouted query", "YTSEARCH:shouted query", nil},
	}

	for _, tt := range tests {
		got, err := NormalizeIdentifier(tt.in)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("NormalizeIdentifier(%q) err = %v, want %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFlattenLoadResult(t *testing.T) {
	trackA := mkTrack("encA", "A", 120000)
	trackB := mkTrack("encB", "B", 120000)

	t.Run("track", func(t *testing.T) {
		got, err := FlattenLoadResult(&node.LoadResult{LoadType: node.LoadTypeTrack, Tracks: []node.Track{trackA}})
		if err != nil || len(got) != 1 || got[0].Encoded != "encA" {
			t.Errorf("got %v, %v", got, err)
		}
	})

	t.Run("search", func(t *testing.T) {
		got, err := FlattenLoadResult(&node.LoadResult{LoadType: node.LoadTypeSearch, Tracks: []node.Track{trackA, trackB}})
		if err != nil || len(got) != 2 {
			t.Errorf("got %v, %v", got, err)
		}
	})

	t.Run("playlist", func(t *testing.T) {
		got, err := FlattenLoadResult(&node.LoadResult{
			LoadType: node.LoadTypePlaylist,
			Playlist: &node.Playlist{Info: node.PlaylistInfo{Name: "mix"}, Tracks: []node.Track{trackB, trackA}},
		})
		if err != nil || len(got) != 2 || got[0].Encoded != "encB" {
			t.Errorf("got %v, %v", got, err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		got, err := FlattenLoadResult(&node.LoadResult{LoadType: node.LoadTypeEmpty})
		if err != nil || len(got) != 0 {
			t.Errorf("got %v, %v", got, err)
		}
	})

	t.Run("error carries message and severity", func(t *testing.T) {
		msg := "something broke upstream"
		_, err := FlattenLoadResult(&node.LoadResult{
			LoadType:  node.LoadTypeError,
			Exception: &node.Exception{Message: &msg, Severity: "common"},
		})
		var re *ResolveError
		if !errors.As(err, &re) {
			t.Fatalf("err = %v, want *ResolveError", err)
		}
		if re.Message != msg || re.Severity != "common" {
			t.Errorf("resolve error = %+v", re)
		}
	})

	t.Run("error without exception", func(t *testing.T) {
		_, err := FlattenLoadResult(&node.LoadResult{LoadType: node.LoadTypeError})
		var re *ResolveError
		if !errors.As(err, &re) {
			t.Fatalf("err = %v, want *ResolveError", err)
		}
	})

	t.Run("unknown load type collapses to empty", func(t *testing.T) {
		got, err := FlattenLoadResult(&node.LoadResult{LoadType: "shortcut"})
		if err != nil || got != nil {
			t.Errorf("got %v, %v", got, err)
		}
	})
}
