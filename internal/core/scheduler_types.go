package core

import sch "powerbot/internal/services/scheduler"

// Re-export scheduler types for the plugin SDK (plugins don't import internal/services/scheduler).
type Snapshot = sch.Snapshot
type ScheduleInfo = sch.ScheduleInfo
type HistoryItem = sch.HistoryItem
