package constants

const (
	RoomStatusWaiting  = "waiting"
	RoomStatusPlaying  = "playing"
	RoomStatusFinished = "finished"
)

const (
	SessionStatusNotStarted     = "not_started"
	SessionStatusQuestionActive = "question_active"
	SessionStatusQuestionClosed = "question_closed"
	SessionStatusFinished       = "finished"
)

const (
	SelectionModeRandom     = "random"
	SelectionModeSequential = "sequential"
)
