package config

type WorkerKeyStruct struct {
	PersistAnswersQueue   string
	FinalizedSessionQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue:   "persist_answers_queue",
	FinalizedSessionQueue: "finalized_sessions_queue",
}
