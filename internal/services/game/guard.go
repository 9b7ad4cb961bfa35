package game

import "github.com/mcoot/escaperoom/internal/model"

// CanChangeScene reports whether a player on scene from may move to scene to.
// Puzzle scenes are entered from the main scene only; main and the finale
// are reachable from anywhere. Staying on the same scene is not a change.
func CanChangeScene(from, to model.Scene, known func(model.EnigmaID) bool) bool {
	if from == to {
		return false
	}
	switch {
	case to == model.SceneMain, to == model.SceneFinale:
		return true
	case to.IsEnigma():
		return from == model.SceneMain && known(to.EnigmaID())
	default:
		return false
	}
}
