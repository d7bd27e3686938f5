package engine

import "image"

// Cue names a template image shipped in the assets directory. The value is the
// file stem of the template.
type Cue string

const (
	CUE_BATTLE_ALREADY_SCREEN  Cue = "BATTLE_ALREADY_SCREEN"
	CUE_BATTLE_SCREEN          Cue = "BATTLE_SCREEN"
	CUE_VERSUS_SCREEN          Cue = "VERSUS_SCREEN"
	CUE_EVENT_MATCH_SCREEN     Cue = "EVENT_MATCH_SCREEN"
	CUE_RANDOM_MATCH_SCREEN    Cue = "RANDOM_MATCH_SCREEN"
	CUE_BATTLE_BUTTON          Cue = "BATTLE_BUTTON"
	CUE_TIME_LIMIT_INDICATOR   Cue = "TIME_LIMIT_INDICATOR"
	CUE_START_BATTLE_BUTTON    Cue = "START_BATTLE_BUTTON"
	CUE_GOING_FIRST_INDICATOR  Cue = "GOING_FIRST_INDICATOR"
	CUE_GOING_SECOND_INDICATOR Cue = "GOING_SECOND_INDICATOR"
	CUE_TAP_TO_PROCEED_BUTTON  Cue = "TAP_TO_PROCEED_BUTTON"
	CUE_NEXT_BUTTON            Cue = "NEXT_BUTTON"
	CUE_THANKS_BUTTON          Cue = "THANKS_BUTTON"
	CUE_CROSS_BUTTON           Cue = "CROSS_BUTTON"
	CUE_END_TURN               Cue = "END_TURN"
	CUE_OK                     Cue = "OK"
	CUE_RIVAL_AFK              Cue = "RIVAL_AFK"

	CUE_LOG_PUT_ON_BENCH  Cue = "bl_put_on_bench"
	CUE_LOG_DISCARDED     Cue = "bl_discarded"
	CUE_LOG_PUT_ON_ACTIVE Cue = "bl_put_on_active"
)

// AllCues is every cue the engine expects to find on disk
var AllCues = []Cue{
	CUE_BATTLE_ALREADY_SCREEN,
	CUE_BATTLE_SCREEN,
	CUE_VERSUS_SCREEN,
	CUE_EVENT_MATCH_SCREEN,
	CUE_RANDOM_MATCH_SCREEN,
	CUE_BATTLE_BUTTON,
	CUE_TIME_LIMIT_INDICATOR,
	CUE_START_BATTLE_BUTTON,
	CUE_GOING_FIRST_INDICATOR,
	CUE_GOING_SECOND_INDICATOR,
	CUE_TAP_TO_PROCEED_BUTTON,
	CUE_NEXT_BUTTON,
	CUE_THANKS_BUTTON,
	CUE_CROSS_BUTTON,
	CUE_END_TURN,
	CUE_OK,
	CUE_RIVAL_AFK,
	CUE_LOG_PUT_ON_BENCH,
	CUE_LOG_DISCARDED,
	CUE_LOG_PUT_ON_ACTIVE,
}

type Cues map[Cue]image.Image
