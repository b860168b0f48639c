package storage

import (
	"fmt"

	"github.com/gauteh/sfy-go/axl"
)

// CollectionSize is the number of packages stored per collection file.
const CollectionSize = 100

// StorageVersion is the on-disk layout version, appended to collection
// filenames: "12312.2" is collection 12312, version 2.
const StorageVersion = 2

// IDToParts decomposes a global package id into its collection filename,
// the index of the package within that collection, and its byte offset.
func IDToParts(id uint32) (collection string, fileIndex uint32, offset int) {
	c := id / CollectionSize
	fileIndex = id % CollectionSize
	offset = int(fileIndex) * axl.AxlPostcardSZ
	collection = fmt.Sprintf("%d.%d", c, StorageVersion)
	return collection, fileIndex, offset
}

// CollectionOf returns just the collection filename for id.
func CollectionOf(id uint32) string {
	c, _, _ := IDToParts(id)
	return c
}
