// Package kbchat embeds the knowledge base chat pipeline in a Go program.
//
// Files are loaded, split and embedded into a Redis (or in-process) vector
// store; questions are answered by a caller-supplied chat model with the
// most relevant chunks in its prompt.
//
//	client, _ := kbchat.New(ctx,
//	    kbchat.WithRedis("localhost:6379", ""),
//	    kbchat.WithEmbedder(myEmbedder),
//	    kbchat.WithChatModel(myModel),
//	)
//	defer client.Close()
//
//	n, _ := client.Ingest(ctx, kbchat.IngestRequest{Path: "handbook.pdf", Namespace: "handbook"})
//	err := client.Chat(ctx, kbchat.ChatRequest{
//	    Namespace: "handbook",
//	    Messages:  []kbchat.Message{{Role: kbchat.RoleUser, Content: "How many vacation days?"}},
//	}, os.Stdout)
//
// Questions starting with "/s " or "/g " are answered from a fetched web page
// or from web search results instead of the knowledge base.
package kbchat
