package main

import (
	"os"

	voicenotescmder "github.com/papercomputeco/voicenotes/cmd/voicenotes"
)

func main() {
	cmd := voicenotescmder.NewVoicenotesCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
