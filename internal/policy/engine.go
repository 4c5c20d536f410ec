// Package policy decides, per user pair, who may hear whom as the room's
// tactical state changes. Evaluation is pure: it only reads the snapshot
// passed in, so the same inputs always produce the same answer.
package policy

// Engine evaluates the tactical communication rules.
//
// ForceCallOverridesSpeaker controls whether a leader's force-call also
// overrides the listener's own speaker-off state. When false, callers are
// expected to keep gating on the listener's speaker flag themselves.
type Engine struct {
	ForceCallOverridesSpeaker bool
}

func NewEngine(forceCallOverridesSpeaker bool) *Engine {
	return &Engine{ForceCallOverridesSpeaker: forceCallOverridesSpeaker}
}

// CanHear reports whether the listener may receive the speaker's audio
// under the given room snapshot. The rules form a total order; the first
// match wins. The listener's own speaker flag is the caller's concern,
// except during force-call when ForceCallOverridesSpeaker is set.
func (e *Engine) CanHear(listener, speaker UserSnapshot, room RoomSnapshot) bool {
	if listener.ID == speaker.ID {
		return false
	}

	// Commander all-hands broadcast bypasses every other rule.
	if room.ForceCall {
		return true
	}

	// Lobby chat is a free-for-all before the mission starts.
	if room.Status == StatusPreparing {
		return true
	}

	// Unassigned users are isolated in assault mode.
	if !listener.HasTeam() && listener.Role != RoleLeader {
		return false
	}
	if !speaker.HasTeam() && speaker.Role != RoleLeader {
		return false
	}

	// Leader <-> any captain.
	if listener.Role == RoleLeader && speaker.Role == RoleCaptain {
		return true
	}
	if speaker.Role == RoleLeader && listener.Role == RoleCaptain {
		return true
	}

	// Captains form a command channel across teams.
	if listener.Role == RoleCaptain && speaker.Role == RoleCaptain {
		return true
	}

	// Captain <-> own team members.
	if listener.Role == RoleCaptain && speaker.TeamID == listener.TeamID {
		return true
	}
	if speaker.Role == RoleCaptain && listener.TeamID == speaker.TeamID {
		return true
	}

	// Members of the same team.
	if listener.TeamID == speaker.TeamID && listener.TeamID != "" {
		return true
	}

	// A leader who has joined a team hears and is heard by that team.
	if listener.Role == RoleLeader && listener.HasTeam() && speaker.TeamID == listener.TeamID {
		return true
	}
	if speaker.Role == RoleLeader && speaker.HasTeam() && listener.TeamID == speaker.TeamID {
		return true
	}

	return false
}

// ListenerGate reports whether the listener's own speaker-off state should
// silence a stream the rules would otherwise allow.
func (e *Engine) ListenerGate(listener UserSnapshot, room RoomSnapshot) bool {
	if room.ForceCall && e.ForceCallOverridesSpeaker {
		return true
	}
	return listener.SpeakerEnabled
}
