// Package credentials stores the Apify and OpenAI API tokens.
//
// Tokens are saved to the OS keychain when one is available and to an
// AES-GCM encrypted file otherwise. Environment variables are consulted
// last and are read-only.
package credentials
