package bes

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/bwesterb/byteswriter"
	"github.com/cespare/xxhash"
	"github.com/edsrzf/mmap-go"
	"github.com/hashicorp/go-multierror"
	"github.com/nightlyone/lockfile"
)

// A KeyContainer has two tasks
//
//  1. It has to store a party's long-term key material: the master
//     secret at the broadcaster, the issued key material at a member.
//  2. It can cache derived label material (the master's tree-label
//     table) so that a reopened master skips re-derivation.
//
// NOTE A KeyContainer does not have to be thread safe.
type KeyContainer interface {
	// Reset (or initialize) the container with the given key material
	// and description.  Drops any cache.
	Reset(info ContainerInfo, material []byte) Error

	// Returns the description if the container is initialized (eg. the
	// file exists) and nil if not.
	Info() *ContainerInfo

	// Returns the stored key material.
	Material() ([]byte, Error)

	// Reset (or initialize) the cache to the given size in bytes.  The
	// cache buffer (see Cache) is checksummed on Close.
	ResetCache(size uint32) Error

	// Returns the cache buffer.  The exists return value indicates
	// whether an intact cache was present.  Changes to the buffer are
	// written back to storage.
	Cache() (buf []byte, exists bool, err Error)

	// Drops the cache (if there even was one to begin with).
	DropCache() Error

	// Closes the container.
	Close() Error
}

// Describes whose key material a container holds.
type ContainerInfo struct {
	Scheme  [16]byte // scheme name, zero padded
	User    int32    // UserID, -1 for the master
	NbUsers uint32
}

// Builds a ContainerInfo for the given scheme instance.
func NewContainerInfo(s Scheme) ContainerInfo {
	var info ContainerInfo
	copy(info.Scheme[:], s.Name())
	info.User = int32(s.User())
	info.NbUsers = s.NbUsers()
	return info
}

// KeyContainer backed by three files:
//
//	path/to/key        key material and description
//	path/to/key.lock   a lockfile
//	path/to/key.cache  cached label material
type fsContainer struct {
	flock       lockfile.Lockfile // file lock
	path        string            // absolute base path
	initialized bool
	closed      bool

	info     ContainerInfo
	material []byte

	cacheFile *os.File
	cacheBuf  mmap.MMap // cacheSize bytes of data plus an 8-byte checksum
	cacheSize uint32
}

const (
	// First 8 bytes (in hex) of the key material file
	FS_CONTAINER_KEY_MAGIC = "b1f0a88e44c3d905"

	// First 8 bytes (in hex) of the label cache file
	FS_CONTAINER_CACHE_MAGIC = "52ce17d9e03b86aa"

	// Offset of the cache data region; must be page aligned for mmap
	fsCacheDataOffset = 4096
)

// Header of the key material file
type fsKeyHeader struct {
	Magic        [8]byte // Should be FS_CONTAINER_KEY_MAGIC
	Info         ContainerInfo
	MaterialSize uint32
}

// Header of the cache file
type fsCacheHeader struct {
	Magic [8]byte // Should be FS_CONTAINER_CACHE_MAGIC
	Size  uint32  // cache data size, checksum excluded
}

// Returns a KeyContainer backed by the filesystem.
func OpenFSKeyContainer(path string) (KeyContainer, Error) {
	var ctr fsContainer
	var err error

	ctr.path, err = filepath.Abs(path)
	if err != nil {
		return nil, wrapErrorf(err,
			"Could not turn %s into an absolute path", path)
	}

	// Acquire lock
	lockFilePath := ctr.path + ".lock"
	ctr.flock, err = lockfile.New(lockFilePath)
	if err != nil {
		return nil, wrapErrorf(err,
			"Failed to create lockfile %s", lockFilePath)
	}

	err = ctr.flock.TryLock()
	if _, ok := err.(interface {
		Temporary() bool
	}); ok {
		return nil, errorf(ErrLocked, "%s is locked", path)
	}

	// Check if the container exists
	if _, err = os.Stat(ctr.path); os.IsNotExist(err) {
		return &ctr, nil
	}

	// Open the container.
	file, err := os.Open(ctr.path)
	if err != nil {
		return &ctr, wrapErrorf(err, "Failed to open keyfile %s", path)
	}
	defer file.Close()

	var keyHeader fsKeyHeader
	err = binary.Read(file, binary.BigEndian, &keyHeader)
	if err != nil {
		return &ctr, wrapErrorf(err, "Failed to read keyfile header")
	}

	if FS_CONTAINER_KEY_MAGIC != hex.EncodeToString(keyHeader.Magic[:]) {
		return &ctr, errorf(ErrStorage, "Keyfile has invalid magic")
	}

	ctr.info = keyHeader.Info
	ctr.material = make([]byte, keyHeader.MaterialSize)
	_, err = io.ReadFull(file, ctr.material)
	if err != nil {
		return &ctr, wrapErrorf(err, "Failed to read key material")
	}

	ctr.initialized = true
	return &ctr, nil
}

func (ctr *fsContainer) Info() *ContainerInfo {
	if !ctr.initialized {
		return nil
	}
	return &ctr.info
}

func (ctr *fsContainer) Reset(info ContainerInfo, material []byte) Error {
	if err := ctr.DropCache(); err != nil {
		return err
	}

	ctr.info = info
	ctr.material = make([]byte, len(material))
	copy(ctr.material, material)

	file, err := os.OpenFile(ctr.path,
		os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return wrapErrorf(err, "Failed to create keyfile %s", ctr.path)
	}
	defer file.Close()

	keyHeader := fsKeyHeader{
		Info:         info,
		MaterialSize: uint32(len(material)),
	}
	magic, _ := hex.DecodeString(FS_CONTAINER_KEY_MAGIC)
	copy(keyHeader.Magic[:], magic)
	if err = binary.Write(file, binary.BigEndian, &keyHeader); err != nil {
		return wrapErrorf(err, "Failed to write keyfile header")
	}
	if _, err = file.Write(material); err != nil {
		return wrapErrorf(err, "Failed to write key material")
	}

	ctr.initialized = true
	return nil
}

func (ctr *fsContainer) Material() ([]byte, Error) {
	if !ctr.initialized {
		return nil, errorf(ErrSequence, "Container is not initialized")
	}
	ret := make([]byte, len(ctr.material))
	copy(ret, ctr.material)
	return ret, nil
}

func (ctr *fsContainer) ResetCache(size uint32) Error {
	if !ctr.initialized {
		return errorf(ErrSequence, "Container is not initialized")
	}
	if err := ctr.closeCache(); err != nil {
		return err
	}

	cachePath := ctr.path + ".cache"
	file, err := os.OpenFile(cachePath,
		os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return wrapErrorf(err, "Failed to create cache file")
	}

	header := fsCacheHeader{Size: size}
	magic, _ := hex.DecodeString(FS_CONTAINER_CACHE_MAGIC)
	copy(header.Magic[:], magic)
	if err = binary.Write(file, binary.BigEndian, &header); err != nil {
		file.Close()
		return wrapErrorf(err, "Failed to write cache file header")
	}
	if err = file.Truncate(fsCacheDataOffset + int64(size) + 8); err != nil {
		file.Close()
		return wrapErrorf(err, "Failed to size cache file")
	}

	buf, err := mmap.MapRegion(file, int(size)+8, mmap.RDWR, 0,
		fsCacheDataOffset)
	if err != nil {
		file.Close()
		return wrapErrorf(err, "Failed to mmap cache file")
	}

	ctr.cacheFile = file
	ctr.cacheBuf = buf
	ctr.cacheSize = size
	return nil
}

// Opens the cache file, if there is an intact one.
func (ctr *fsContainer) openCache() (bool, Error) {
	cachePath := ctr.path + ".cache"
	file, err := os.OpenFile(cachePath, os.O_RDWR, 0)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, wrapErrorf(err, "Failed to open cache file")
	}

	var header fsCacheHeader
	if err = binary.Read(file, binary.BigEndian, &header); err != nil {
		file.Close()
		return false, wrapErrorf(err, "Failed to read cache file header")
	}
	if FS_CONTAINER_CACHE_MAGIC != hex.EncodeToString(header.Magic[:]) {
		file.Close()
		return false, errorf(ErrStorage, "Cache file magic is wrong")
	}

	buf, err := mmap.MapRegion(file, int(header.Size)+8, mmap.RDWR, 0,
		fsCacheDataOffset)
	if err != nil {
		file.Close()
		return false, wrapErrorf(err, "Failed to mmap cache file")
	}

	// Verify the checksum at the end of the buffer.
	stored := decodeUint64(buf[header.Size : header.Size+8])
	if stored != xxhash.Sum64(buf[:header.Size]) {
		log.Logf("Cache checksum mismatch --- dropping cache")
		buf.Unmap()
		file.Close()
		return false, nil
	}

	ctr.cacheFile = file
	ctr.cacheBuf = buf
	ctr.cacheSize = header.Size
	return true, nil
}

func (ctr *fsContainer) Cache() ([]byte, bool, Error) {
	if !ctr.initialized {
		return nil, false, errorf(ErrSequence, "Container is not initialized")
	}
	if ctr.cacheBuf != nil {
		return ctr.cacheBuf[:ctr.cacheSize], true, nil
	}
	ok, err := ctr.openCache()
	if err != nil || !ok {
		return nil, false, err
	}
	return ctr.cacheBuf[:ctr.cacheSize], true, nil
}

// Writes the checksum and unmaps the cache buffer.
func (ctr *fsContainer) closeCache() Error {
	if ctr.cacheBuf == nil {
		return nil
	}
	encodeUint64Into(xxhash.Sum64(ctr.cacheBuf[:ctr.cacheSize]),
		ctr.cacheBuf[ctr.cacheSize:ctr.cacheSize+8])
	var err error
	if err2 := ctr.cacheBuf.Flush(); err2 != nil {
		err = multierror.Append(err, err2)
	}
	if err2 := ctr.cacheBuf.Unmap(); err2 != nil {
		err = multierror.Append(err, err2)
	}
	if err2 := ctr.cacheFile.Close(); err2 != nil {
		err = multierror.Append(err, err2)
	}
	ctr.cacheBuf = nil
	ctr.cacheFile = nil
	if err != nil {
		return wrapErrorf(err, "Failed to close cache")
	}
	return nil
}

func (ctr *fsContainer) DropCache() Error {
	if err := ctr.closeCache(); err != nil {
		return err
	}
	err := os.Remove(ctr.path + ".cache")
	if err != nil && !os.IsNotExist(err) {
		return wrapErrorf(err, "Failed to remove cache file")
	}
	return nil
}

func (ctr *fsContainer) Close() Error {
	if ctr.closed {
		return nil
	}
	ctr.closed = true
	var err error
	if err2 := ctr.closeCache(); err2 != nil {
		err = multierror.Append(err, err2)
	}
	if err2 := ctr.flock.Unlock(); err2 != nil {
		err = multierror.Append(err, err2)
	}
	if err != nil {
		return wrapErrorf(err, "Failed to close container")
	}
	return nil
}

// Writes the master's derived tree-label table into the container
// cache, so that a reopened master can skip Setup's derivations.
func (bes *NNLSD) StoreLabels(ctr KeyContainer) Error {
	if bes.user != Master || bes.treeLabels == nil {
		return errorf(ErrSequence, "StoreLabels() before Setup()")
	}
	size := uint32(len(bes.treeLabels) * bes.keySize)
	if err := ctr.ResetCache(size); err != nil {
		return err
	}
	buf, _, err := ctr.Cache()
	if err != nil {
		return err
	}
	w := byteswriter.NewWriter(buf)
	for _, label := range bes.treeLabels {
		if _, err := w.Write(label); err != nil {
			return wrapErrorf(err, "Failed to write label cache")
		}
	}
	return nil
}

// Loads the tree-label table from the container cache.  Returns false
// when no intact cache is present.
func (bes *NNLSD) LoadLabels(ctr KeyContainer) (bool, Error) {
	if bes.user != Master {
		return false, errorf(ErrSequence, "only the master holds labels")
	}
	buf, exists, err := ctr.Cache()
	if err != nil || !exists {
		return false, err
	}
	if uint32(len(buf)) != (bes.nbUsers-1)*uint32(bes.keySize) {
		return false, errorf(ErrStorage,
			"label cache should have size %d, got %d",
			(bes.nbUsers-1)*uint32(bes.keySize), len(buf))
	}
	bes.treeLabels = make([][]byte, bes.nbUsers-1)
	for i := range bes.treeLabels {
		bes.treeLabels[i] = append([]byte{},
			buf[i*bes.keySize:(i+1)*bes.keySize]...)
	}
	log.Logf("NNL-SD: loaded %d node labels from cache", len(bes.treeLabels))
	return true, nil
}

// Stores issued key material (or the master secret) in the container.
func StoreUserKey(ctr KeyContainer, s Scheme, material []byte) Error {
	return ctr.Reset(NewContainerInfo(s), material)
}

// Loads a member's key material from the container into the scheme.
func LoadUserKey(ctr KeyContainer, s Scheme) Error {
	info := ctr.Info()
	if info == nil {
		return errorf(ErrSequence, "Container is not initialized")
	}
	expected := NewContainerInfo(s)
	if *info != expected {
		return errorf(ErrParameters,
			"container holds material for another party")
	}
	material, err := ctr.Material()
	if err != nil {
		return err
	}
	return s.SetUserKey(material)
}
