package placement

import (
	"beltline.dev/internal/editor/mirror"
	"beltline.dev/internal/editor/model"
)

type nopOverlay struct{}

func (nopOverlay) ShowCursorBox()                                          {}
func (nopOverlay) HideCursorBox()                                          {}
func (nopOverlay) UpdateCursorBoxPosition(mirror.Pixel)                    {}
func (nopOverlay) UpdateCursorBoxSize(int, int)                            {}
func (nopOverlay) UpdateUndergroundLines(string, model.Position, int, int) {}
func (nopOverlay) UpdateUndergroundLinesPosition(mirror.Pixel)             {}
func (nopOverlay) HideUndergroundLines()                                   {}
func (nopOverlay) SetBuildable(bool)                                       {}

type nopWires struct{}

func (nopWires) Update(int) {}
func (nopWires) Remove(int) {}

type nopEditor struct{}

func (nopEditor) Open(int) {}
func (nopEditor) Close()   {}

type nopMetrics struct{}

func (nopMetrics) Gesture(string, bool) {}
