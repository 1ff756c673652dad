// Package vectorstore stores chunk embeddings per namespace and answers
// top-k similarity queries.
//
// Two backends implement Index: ChromemIndex (embedded chromem-go, the
// default) and QdrantIndex (Qdrant over gRPC). New wraps either in
// Serialized, which is what the rest of tutord uses:
//
//	idx, err := vectorstore.New(ctx, vectorstore.Options{
//	    Chromem:  vectorstore.ChromemConfig{Path: "/var/lib/tutord/index"},
//	    Registry: manifestStore,
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	defer idx.Close()
//
//	err = idx.Upsert(ctx, vectorstore.DefaultNamespace, entries)
//	results, _ := idx.Query(ctx, vectorstore.DefaultNamespace, vector, 3)
//
// # Namespaces
//
// Namespace names match ^[a-z0-9_]{1,64}$. The general corpus lives in
// DefaultNamespace; course material lives in CourseNamespace(id).
//
// # Failure model
//
// Upserts fail loudly with ErrIndexUnavailable, ErrDimensionMismatch or
// ErrInvalidNamespace. Queries never fail: a missing namespace, an empty
// index or a broken backend all produce an empty result.
package vectorstore
