// Command iceprobe gathers local and server-reflexive candidates for a
// single ICE stream and prints them, the way examples/stun in the wider
// pion ecosystem prints a connection state. It exercises Agent/NewNetAgent
// end to end without needing a signalling channel or a peer.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	iceprobe "github.com/HyeonuPark/libnice/pkg/ice"
	"github.com/pion/logging"
)

func main() {
	stunServer := flag.String("stun-server", "stun.l.google.com", "STUN server hostname")
	stunPort := flag.Int("stun-port", 19302, "STUN server port")
	timeout := flag.Duration("timeout", 5*time.Second, "how long to wait for gathering to finish")
	flag.Parse()

	loggerFactory := logging.NewDefaultLoggerFactory()
	log := loggerFactory.NewLogger("iceprobe")

	agent, err := iceprobe.NewNetAgent(true, *stunServer, *stunPort, loggerFactory)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create agent:", err)
		os.Exit(1)
	}
	defer agent.Close()

	done := make(chan struct{})
	agent.SetEventHandler(iceprobe.EventHandlerFuncs{
		NewCandidate: func(streamID, componentID int, foundation string) {
			log.Infof("new local candidate on stream %d component %d (foundation %s)", streamID, componentID, foundation)
		},
		CandidateGatheringDone: func(streamID int) {
			log.Infof("gathering done for stream %d", streamID)
			close(done)
		},
	})

	streamID, ufrag, password, err := agent.AddStream(1)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to add stream:", err)
		os.Exit(1)
	}
	fmt.Printf("stream %d ufrag=%s password=%s\n", streamID, ufrag, password)

	for _, ip := range iceprobe.LocalInterfaceAddresses() {
		if err := agent.AddLocalAddress(streamID, ip); err != nil {
			log.Warnf("failed to bind %s: %v", ip, err)
		}
	}

	select {
	case <-done:
	case <-time.After(*timeout):
		log.Warnf("timed out waiting for gathering to finish")
	}
}
