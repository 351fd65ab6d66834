// Package tank keeps the local history of tank readings, adopted devices
// and poll cycles in SQLite.
//
// The oilfox bridge hands every fetched device record to a Recorder, which
// stores it once per metering time and mirrors new readings to InfluxDB
// when a time-series writer is configured. Devices approved through the
// discovery inbox are stored here so they are restored on the next start.
package tank
