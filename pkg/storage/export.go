package storage

import (
	"context"
	"fmt"

	"augeias/pkg/archive"
)

// BuildContainerArchive zips every object of container as listed and read
// through s. Backends without a cheaper way to enumerate their data use it to
// implement GetContainerArchive.
func BuildContainerArchive(ctx context.Context, s ObjectStore, container string, names map[string]string) ([]byte, error) {
	keys, err := s.ListObjectKeys(ctx, container)
	if err != nil {
		return nil, err
	}
	members := make([]archive.Member, 0, len(keys))
	for _, key := range keys {
		data, err := s.GetObject(ctx, container, key)
		if err != nil {
			return nil, fmt.Errorf("read %q for archive: %w", key, err)
		}
		name := key
		if n, ok := names[key]; ok {
			name = n
		}
		members = append(members, archive.Member{Name: name, Data: data})
	}
	return archive.BuildZip(members)
}
