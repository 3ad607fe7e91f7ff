package intent

// The query surface is fixed: every request is one of these documents with
// its inputs passed as GraphQL variables.
const (
	queryListDevices = `query ListDevices {
  DcimDevice {
    edges { node { name { value } } }
  }
}`

	queryGetDevice = `query GetDevice($hostname: String!) {
  DcimDevice(name__value: $hostname) {
    edges {
      node {
        id
        name { value }
        description { value }
        management_ip { value }
        lab_node_name { value }
        role { value }
        status { value }
        asn { node { asn { value } name { value } } }
      }
    }
  }
}`

	queryGetInterfaces = `query GetDeviceInterfaces($device_ids: [ID!]) {
  InterfacePhysical(device__ids: $device_ids) {
    edges {
      node {
        id
        name { value }
        description { value }
        mtu { value }
        role { value }
        ip_addresses { edges { node { address { value } } } }
      }
    }
  }
}`

	queryGetBGPSessions = `query GetDeviceBGPSessions($device_ids: [ID!]) {
  RoutingBGPSession(device__ids: $device_ids) {
    edges {
      node {
        id
        description { value }
        session_type { value }
        role { value }
        status { value }
        local_as { node { asn { value } } }
        remote_as { node { asn { value } } }
        local_ip { node { address { value } } }
        remote_ip { node { address { value } } }
        peer_group { node { name { value } } }
      }
    }
  }
}`

	mutationUpdateDeviceStatus = `mutation UpdateDeviceStatus($data: DcimDeviceUpdateInput!) {
  DcimDeviceUpdate(data: $data) {
    ok
    object { id display_label }
  }
}`
)

// Infrahub wraps every attribute as {"value": ...}.
type stringAttr struct {
	Value string `json:"value"`
}

type intAttr struct {
	Value *int64 `json:"value"`
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type listDevicesData struct {
	DcimDevice struct {
		Edges []struct {
			Node struct {
				Name stringAttr `json:"name"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"DcimDevice"`
}

type deviceNode struct {
	ID           string     `json:"id"`
	Name         stringAttr `json:"name"`
	Description  stringAttr `json:"description"`
	ManagementIP stringAttr `json:"management_ip"`
	LabNodeName  stringAttr `json:"lab_node_name"`
	Role         stringAttr `json:"role"`
	Status       stringAttr `json:"status"`
	ASN          struct {
		Node *struct {
			ASN  intAttr    `json:"asn"`
			Name stringAttr `json:"name"`
		} `json:"node"`
	} `json:"asn"`
}

type getDeviceData struct {
	DcimDevice struct {
		Edges []struct {
			Node deviceNode `json:"node"`
		} `json:"edges"`
	} `json:"DcimDevice"`
}

type interfaceNode struct {
	ID          string     `json:"id"`
	Name        stringAttr `json:"name"`
	Description stringAttr `json:"description"`
	MTU         intAttr    `json:"mtu"`
	Role        stringAttr `json:"role"`
	IPAddresses struct {
		Edges []struct {
			Node struct {
				Address stringAttr `json:"address"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"ip_addresses"`
}

type getInterfacesData struct {
	InterfacePhysical struct {
		Edges []struct {
			Node interfaceNode `json:"node"`
		} `json:"edges"`
	} `json:"InterfacePhysical"`
}

type asnRel struct {
	Node *struct {
		ASN intAttr `json:"asn"`
	} `json:"node"`
}

type addressRel struct {
	Node *struct {
		Address stringAttr `json:"address"`
	} `json:"node"`
}

type bgpSessionNode struct {
	ID          string     `json:"id"`
	Description stringAttr `json:"description"`
	SessionType stringAttr `json:"session_type"`
	Role        stringAttr `json:"role"`
	Status      stringAttr `json:"status"`
	LocalAS     asnRel     `json:"local_as"`
	RemoteAS    asnRel     `json:"remote_as"`
	LocalIP     addressRel `json:"local_ip"`
	RemoteIP    addressRel `json:"remote_ip"`
	PeerGroup   struct {
		Node *struct {
			Name stringAttr `json:"name"`
		} `json:"node"`
	} `json:"peer_group"`
}

type getBGPSessionsData struct {
	RoutingBGPSession struct {
		Edges []struct {
			Node bgpSessionNode `json:"node"`
		} `json:"edges"`
	} `json:"RoutingBGPSession"`
}

type updateDeviceData struct {
	DcimDeviceUpdate struct {
		OK     bool `json:"ok"`
		Object *struct {
			ID           string `json:"id"`
			DisplayLabel string `json:"display_label"`
		} `json:"object"`
	} `json:"DcimDeviceUpdate"`
}

func (a intAttr) or(def int64) int64 {
	if a.Value == nil || *a.Value == 0 {
		return def
	}
	return *a.Value
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (n deviceNode) toIntent() *DeviceIntent {
	d := &DeviceIntent{
		ID:           n.ID,
		Name:         n.Name.Value,
		Description:  n.Description.Value,
		ManagementIP: n.ManagementIP.Value,
		LabNodeName:  n.LabNodeName.Value,
		Role:         n.Role.Value,
		Status:       orDefault(n.Status.Value, DefaultStatus),
	}
	if n.ASN.Node != nil {
		d.ASN = n.ASN.Node.ASN.or(0)
		d.ASName = n.ASN.Node.Name.Value
	}
	return d
}

func (n interfaceNode) toIntent() InterfaceIntent {
	iface := InterfaceIntent{
		Name:        n.Name.Value,
		Description: n.Description.Value,
		MTU:         int(n.MTU.or(DefaultMTU)),
		Role:        n.Role.Value,
		Enabled:     true,
	}
	if len(n.IPAddresses.Edges) > 0 {
		iface.Address = n.IPAddresses.Edges[0].Node.Address.Value
	}
	return iface
}

func (n bgpSessionNode) toIntent() BGPSessionIntent {
	s := BGPSessionIntent{
		Description: n.Description.Value,
		SessionType: orDefault(n.SessionType.Value, DefaultSessionType),
		Role:        orDefault(n.Role.Value, DefaultSessionRole),
		Status:      n.Status.Value,
		PeerGroup:   DefaultPeerGroup,
	}
	if n.LocalAS.Node != nil {
		s.LocalAS = n.LocalAS.Node.ASN.or(0)
	}
	if n.RemoteAS.Node != nil {
		s.RemoteAS = n.RemoteAS.Node.ASN.or(0)
	}
	if n.LocalIP.Node != nil {
		s.LocalIP = n.LocalIP.Node.Address.Value
	}
	if n.RemoteIP.Node != nil {
		s.RemoteIP = n.RemoteIP.Node.Address.Value
	}
	if n.PeerGroup.Node != nil && n.PeerGroup.Node.Name.Value != "" {
		s.PeerGroup = n.PeerGroup.Node.Name.Value
	}
	return s
}
