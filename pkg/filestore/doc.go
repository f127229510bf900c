// Package filestore implements the kernel's flat file directory.
//
// A Store maps names to files. Every *File handed out by Create or Open is
// an owning reference: the file keeps a count of them and its content lives
// until the last reference is released. Unlink removes the name at once but
// defers discarding the content while references remain, so descriptors
// opened before the unlink keep working.
//
// All operations on a Store and its files are serialized by one mutex.
//
//	st := filestore.New(filestore.Options{})
//	f, err := st.Create("notes.txt")
//	if err != nil {
//		// handle error
//	}
//	f.WriteAt([]byte("hello"), 0)
//	f.Release()
package filestore
