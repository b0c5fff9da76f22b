package api

import (
	"net/http"
	"os"
	"path"
	"strings"
)

// spaFileSystem serves the player UI, falling back to index.html for client-side
// routes. Missing audio files stay 404 so players can report them.
type spaFileSystem struct {
	root http.FileSystem
}

// Open opens the named file or index.html when it does not exist.
func (s *spaFileSystem) Open(name string) (http.File, error) {
	f, err := s.root.Open(name)
	if os.IsNotExist(err) && !isAsset(name) {
		return s.root.Open("index.html")
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func isAsset(name string) bool {
	if strings.HasPrefix(name, "/audio/") || strings.HasPrefix(name, "/api/") {
		return true
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3", ".wav", ".ogg", ".glb", ".jpg", ".png", ".webp":
		return true
	}
	return false
}
