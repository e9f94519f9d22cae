// Package codec turns plaintext secret segments into self-delimiting
// obfuscated tokens and back.
//
// A token is built by prepending [Sentinel] to the plaintext, XOR-ing the
// UTF-8 bytes with a repeating key, Base64 encoding the result, reversing the
// characters and wrapping them in [TokenPrefix] and [TokenSuffix]:
//
//	XxH@<reversed base64>@HxX
//
// This is obfuscation, not encryption. The default key is public and a
// repeating-key XOR offers no confidentiality against anyone who looks.
//
// Decoding never fails from the caller's point of view: [Decode] tries the
// supplied key, then the default key, and returns [Placeholder] when neither
// produces the sentinel. [Open] is the single-attempt primitive that reports
// why an attempt failed.
package codec
