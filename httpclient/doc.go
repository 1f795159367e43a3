// Package httpclient is the outbound HTTP client used by the remote
// transcription backends. It handles base URLs, default headers, auth,
// multipart uploads and status classification, and can wrap every call in
// a retry loop and a circuit breaker.
//
//	client, err := httpclient.New(httpclient.Config{
//	    BaseURL: "https://api.openai.com/v1",
//	    Auth:    httpclient.BearerAuth(key),
//	    Retry:   httpclient.DefaultRetryConfig(),
//	})
//	resp, err := client.Do(ctx, httpclient.Request{
//	    Method: http.MethodPost,
//	    Path:   "/audio/transcriptions",
//	    Body:   &httpclient.MultipartBody{Fields: fields, Files: files},
//	})
package httpclient
