// # Go Client Package for the Verbalist Realtime Voice API
//
// This repository provides a Go package for building applications that hold real-time, two-way voice conversations with an AI assistant over the Verbalist voice API. It is designed to be imported into your own Go projects, providing the core functionality to handle microphone capture, low-latency audio streaming, speech playback, transcript bookkeeping, and session lifecycle management.
package voicelink
