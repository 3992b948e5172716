// Package hashindex implements the live in-memory hash index that backs the hybrid log: a
// fixed array of HashBucket slots addressed by "modulo hash", with a linear overflow-bucket
// collision chain. It is the data structure IndexRestorer materializes from a checkpoint and
// LogReplayer mutates during replay.
//
// The overflow chain resolves tag collisions within a bucket by scanning forward to the next
// overflow HashBucket, allocated lazily once a primary bucket's slots fill up.
package hashindex

import (
	"fmt"

	"github.com/sharedcode/hlogstore"
)

// slotsPerBucket is the number of addressable slots in one bucket before a collision chain
// must extend into an overflow bucket.
const slotsPerBucket = 66

// maxChainLength bounds how far FindOrCreateTag will walk the overflow chain before giving up.
const maxChainLength = 1000

// Index is the live hash index: numBuckets primary buckets, each potentially chained to
// overflow buckets allocated lazily on collision.
type Index struct {
	numBuckets int
	buckets    []*hlogstore.HashBucket
	// overflow[bucket] is the chain of overflow buckets created for that primary bucket, in
	// creation order.
	overflow map[int][]*hlogstore.HashBucket
}

// New allocates an Index with numBuckets primary buckets, each with slotsPerBucket slots.
func New(numBuckets int) *Index {
	idx := &Index{
		numBuckets: numBuckets,
		buckets:    make([]*hlogstore.HashBucket, numBuckets),
		overflow:   make(map[int][]*hlogstore.HashBucket),
	}
	for i := range idx.buckets {
		idx.buckets[i] = hlogstore.NewHashBucket(slotsPerBucket)
	}
	return idx
}

// NumBuckets returns the number of primary buckets.
func (idx *Index) NumBuckets() int {
	return idx.numBuckets
}

// SetBucket replaces the primary bucket at bucketNum wholesale. Used by IndexRestorer to install
// buckets read back from an index checkpoint file.
func (idx *Index) SetBucket(bucketNum int, b *hlogstore.HashBucket) {
	idx.buckets[bucketNum] = b
}

// Bucket returns the primary bucket for a given bucket number.
func (idx *Index) Bucket(bucketNum int) *hlogstore.HashBucket {
	return idx.buckets[bucketNum]
}

func (idx *Index) bucketNumber(hash uint64) int {
	return int(hash % uint64(idx.numBuckets))
}

// FindOrCreateTag locates the bucket slot whose tag matches (hash, tag), following the overflow
// collision chain. If no slot currently holds this tag, it reserves the first empty slot it
// finds (atomically, via
// CompareAndInstall) by installing a Pending/Tentative placeholder addressed at beginAddress,
// extending the chain with a new overflow bucket if the whole chain is full.
//
// It returns the bucket, slot index, and the entry now occupying that slot (either the
// pre-existing match, or the freshly reserved placeholder).
func (idx *Index) FindOrCreateTag(hash uint64, tag uint16, beginAddress hlogstore.LogicalAddress) (*hlogstore.HashBucket, int, hlogstore.HashBucketEntry, error) {
	bucketNum := idx.bucketNumber(hash)

	chain := idx.chain(bucketNum)
	for step, b := range chain {
		if step > maxChainLength {
			return nil, 0, hlogstore.HashBucketEntry{}, fmt.Errorf("hashindex: overflow chain for bucket %d exceeds %d buckets", bucketNum, maxChainLength)
		}
		for slot := 0; slot < b.NumSlots(); slot++ {
			entry := b.Get(slot)
			if entry.IsEmpty() {
				placeholder := hlogstore.HashBucketEntry{Address: beginAddress, Tag: tag, Pending: true, Tentative: true}
				if b.CompareAndInstall(slot, entry, placeholder) {
					return b, slot, placeholder, nil
				}
				// Lost the race; re-read and fall through to the match check below.
				entry = b.Get(slot)
			}
			if entry.Tag == tag {
				return b, slot, entry, nil
			}
		}
	}

	// Chain exhausted with no match and no empty slot: extend with a new overflow bucket.
	nb := hlogstore.NewHashBucket(slotsPerBucket)
	idx.overflow[bucketNum] = append(idx.overflow[bucketNum], nb)
	placeholder := hlogstore.HashBucketEntry{Address: beginAddress, Tag: tag, Pending: true, Tentative: true}
	if !nb.CompareAndInstall(0, hlogstore.HashBucketEntry{}, placeholder) {
		return nil, 0, hlogstore.HashBucketEntry{}, fmt.Errorf("hashindex: failed to reserve slot in freshly allocated overflow bucket")
	}
	return nb, 0, placeholder, nil
}

// Install atomically writes entry into the slot previously returned by FindOrCreateTag.
func (idx *Index) Install(b *hlogstore.HashBucket, slot int, entry hlogstore.HashBucketEntry) {
	b.Install(slot, entry)
}

func (idx *Index) chain(bucketNum int) []*hlogstore.HashBucket {
	chain := make([]*hlogstore.HashBucket, 0, 1+len(idx.overflow[bucketNum]))
	chain = append(chain, idx.buckets[bucketNum])
	chain = append(chain, idx.overflow[bucketNum]...)
	return chain
}
