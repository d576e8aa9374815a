package deckhand

// Version is the release version of the module. Release builds override it:
//
//	go build -ldflags "-X github.com/aretw0/deckhand.Version=v0.2.0"
var Version = "dev"
