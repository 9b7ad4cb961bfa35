package model

import "strings"

// Scene is the screen a player is currently looking at
type Scene string

const (
	SceneMain    Scene = "main"
	SceneEnigma1 Scene = "enigma1"
	SceneEnigma2 Scene = "enigma2"
	SceneEnigma3 Scene = "enigma3"
	SceneEnigma4 Scene = "enigma4"
	SceneFinale  Scene = "finale"
)

const enigmaScenePrefix = "enigma"

// IsEnigma reports whether the scene is a puzzle scene
func (s Scene) IsEnigma() bool {
	return strings.HasPrefix(string(s), enigmaScenePrefix) && len(s) > len(enigmaScenePrefix)
}

// EnigmaID returns the puzzle shown by this scene, or "" for non-puzzle scenes
func (s Scene) EnigmaID() EnigmaID {
	if !s.IsEnigma() {
		return ""
	}
	return EnigmaID(s)
}

// SceneFor returns the scene that displays the given puzzle
func SceneFor(id EnigmaID) Scene {
	return Scene(id)
}
