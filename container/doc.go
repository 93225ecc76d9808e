// Package container implements an append-only, chunked, compressed file
// format for large collections of small, similar items.
//
// # File Structure
//
// A container file starts with a header:
//   - magic "LOSDS-", a 4-byte type id (e.g. "MTID") and a file format version
//   - stats: oldest item format, compressed chunk count, compressed item count
//     and uncompressed item count
//   - up to 254 bytes of format-specific data (e.g. a region code)
//   - valid length: offset of the end of committed data
//
// Chunks follow the header. A chunk is either raw (exactly one item) or
// compressed with Deflate or LZ4 (many items, length-prefixed). Deflate
// chunks carry a CRC32 of the decompressed stream.
//
// Bytes past the valid length are never read. An append writes a chunk
// fully and only then moves the valid length, so a crash mid-append leaves
// the previous content intact.
//
// # Basic Usage
//
//	c := container.New("ids.losds", matchids.Format)
//	err := c.Append(container.LZ4, 100, 50, 200)
//
//	items, errFn := c.ReadItems()
//	for id := range items {
//	    // ...
//	}
//	if err := errFn(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Compaction
//
// Many small appends produce many small chunks. [Container.Initialise]
// rewrites the file into maximally compressed chunks when the fraction of
// chunks and raw items to total items crosses [Container.RewriteThreshold].
// [Container.Rewrite] writes to a temporary file, then deletes the original
// and renames the new file in its place.
//
// # Thread Safety
//
// A Container is not safe for concurrent use. At most one process should
// write to a given file at a time.
package container
