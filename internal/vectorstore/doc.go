// Package vectorstore holds the similarity-search backends behind the
// metric metadata index.
//
// Two implementations satisfy Store:
//
//   - ChromemStore embeds github.com/philippgille/chromem-go, either purely
//     in memory or persisted to a directory.
//   - QdrantStore talks to a Qdrant server over gRPC.
//
// Both rank by cosine similarity and treat the document ID (the metric
// name) as the primary key, so upserting an existing ID replaces the
// stored document instead of adding a second one.
//
// # Usage
//
//	embedder, _ := embeddings.NewHashEmbedder(384)
//	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
//	    Collection: "metric_metadata",
//	}, embedder, logger)
//	if err != nil {
//	    return err
//	}
//	err = store.Upsert(ctx, []vectorstore.Document{{
//	    ID:      "http.server.duration",
//	    Content: "Duration of inbound HTTP requests",
//	}})
//	matches, err := store.Query(ctx, "request latency", 5)
package vectorstore
