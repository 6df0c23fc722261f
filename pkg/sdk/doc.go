// Package podcastqa embeds the podcast question answering pipeline in a Go
// program, without running the HTTP server.
//
// The client talks to the same stores and model servers as the service:
//
//	client, _ := podcastqa.New(ctx,
//	    podcastqa.WithValkey("localhost:6379", ""),
//	    podcastqa.WithEmbeddingServer("http://localhost:8080/v1", "", "paraphrase-multilingual-MiniLM-L12-v2"),
//	    podcastqa.WithOpenAI("https://api.openai.com/v1", os.Getenv("OPENAI_API_KEY"), "gpt-4o-mini"),
//	)
//	defer client.Close()
//
//	ans, _ := client.Ask(ctx, "Что такое web3 кошелек?", 5)
//	for _, s := range ans.Sources {
//	    fmt.Println(s.Title, s.Score)
//	}
//
// Custom embedders and language models can be plugged in with WithEmbedder
// and WithLanguageModel.
package podcastqa
