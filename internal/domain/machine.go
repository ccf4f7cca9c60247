package domain

import "fmt"

// Namespace is the address-space namespace every machine folder is registered under.
const Namespace = "SENSOR_DATA"

// Machine binds a machine identifier to its bus topic.
type Machine struct {
	ID    string
	Topic string
}

func (m Machine) TemperatureVar() string { return m.ID + "_Temperature" }
func (m Machine) PressureVar() string    { return m.ID + "_Pressure" }
func (m Machine) TimestampVar() string   { return m.ID + "_Timestamp" }

// Machines is the fixed fleet bridged by this system.
var Machines = []Machine{
	{ID: "Machine1", Topic: "machine1/sensor"},
	{ID: "Machine2", Topic: "machine2/sensor"},
}

// Topics lists the bus topics of the fixed fleet.
func Topics() []string {
	out := make([]string, len(Machines))
	for i, m := range Machines {
		out[i] = m.Topic
	}
	return out
}

// MachineForTopic resolves the machine from a topic name alone.
func MachineForTopic(topic string) (Machine, error) {
	for _, m := range Machines {
		if m.Topic == topic {
			return m, nil
		}
	}
	return Machine{}, fmt.Errorf("no machine bound to topic %q", topic)
}

// MachineByID looks a machine up by its identifier.
func MachineByID(id string) (Machine, error) {
	for _, m := range Machines {
		if m.ID == id {
			return m, nil
		}
	}
	return Machine{}, fmt.Errorf("unknown machine %q", id)
}
