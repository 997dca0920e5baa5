package transfer

import "github.com/zeebo/bencode"

// MetainfoName extracts the declared display name from raw .torrent bytes.
// Returns "" when the metainfo cannot be decoded or carries no name.
func MetainfoName(data []byte) string {
	var meta struct {
		Info struct {
			Name string `bencode:"name"`
		} `bencode:"info"`
	}

	if err := bencode.DecodeBytes(data, &meta); err != nil {
		return ""
	}

	return meta.Info.Name
}
