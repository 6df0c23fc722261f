package chunk

import "github.com/kailas-cloud/podcastqa/internal/db"

// HNSWConfig tunes the HNSW graph of the vector field.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

func collectionPrefix(keyPrefix, collection string) string {
	return keyPrefix + collection + ":"
}

func chunkKey(keyPrefix, collection, id string) string {
	return collectionPrefix(keyPrefix, collection) + id
}

func indexName(keyPrefix, collection string) string {
	return collectionPrefix(keyPrefix, collection) + "idx"
}

// buildIndex describes the FT index over chunk hashes: a case-sensitive tag
// for filtering, the ingestion sequence and a cosine HNSW vector field.
func buildIndex(keyPrefix, collection string, dim int, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	return db.NewIndex(indexName(keyPrefix, collection)).
		Prefix(collectionPrefix(keyPrefix, collection)).
		Tag(fieldTag).
		Numeric(fieldSeq).
		VectorHNSW(fieldVector, dim, db.DistanceCosine, hnsw.M, hnsw.EFConstruct).
		Build()
}
