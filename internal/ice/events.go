package ice

// EventHandler receives the six event kinds spec.md §4.1 names. Every
// method has a no-op default via EventHandlerFuncs so callers only
// implement what they care about, the same pattern the teacher's
// OnICECandidate/OnConnectionStateChange setter style follows, collapsed
// into one interface since this module has no public/private event
// boundary to straddle.
type EventHandler interface {
	OnCandidateGatheringDone(streamID int)
	OnNewCandidate(streamID, componentID int, foundation string)
	OnNewRemoteCandidate(streamID, componentID int, foundation string)
	OnComponentStateChange(streamID, componentID int, state ComponentState)
	OnNewSelectedPair(streamID, componentID int, localFoundation, remoteFoundation string)
	OnInitialBindingRequestReceived(streamID int)
}

// EventHandlerFuncs lets a caller implement only the events it needs,
// mirroring the widely used "Funcs" adapter idiom for optional interface
// methods.
type EventHandlerFuncs struct {
	CandidateGatheringDone      func(streamID int)
	NewCandidate                func(streamID, componentID int, foundation string)
	NewRemoteCandidate          func(streamID, componentID int, foundation string)
	ComponentStateChange        func(streamID, componentID int, state ComponentState)
	NewSelectedPair             func(streamID, componentID int, localFoundation, remoteFoundation string)
	InitialBindingRequestReceived func(streamID int)
}

func (f EventHandlerFuncs) OnCandidateGatheringDone(streamID int) {
	if f.CandidateGatheringDone != nil {
		f.CandidateGatheringDone(streamID)
	}
}

func (f EventHandlerFuncs) OnNewCandidate(streamID, componentID int, foundation string) {
	if f.NewCandidate != nil {
		f.NewCandidate(streamID, componentID, foundation)
	}
}

func (f EventHandlerFuncs) OnNewRemoteCandidate(streamID, componentID int, foundation string) {
	if f.NewRemoteCandidate != nil {
		f.NewRemoteCandidate(streamID, componentID, foundation)
	}
}

func (f EventHandlerFuncs) OnComponentStateChange(streamID, componentID int, state ComponentState) {
	if f.ComponentStateChange != nil {
		f.ComponentStateChange(streamID, componentID, state)
	}
}

func (f EventHandlerFuncs) OnNewSelectedPair(streamID, componentID int, localFoundation, remoteFoundation string) {
	if f.NewSelectedPair != nil {
		f.NewSelectedPair(streamID, componentID, localFoundation, remoteFoundation)
	}
}

func (f EventHandlerFuncs) OnInitialBindingRequestReceived(streamID int) {
	if f.InitialBindingRequestReceived != nil {
		f.InitialBindingRequestReceived(streamID)
	}
}
