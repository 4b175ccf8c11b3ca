package crossbar

import (
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// The OracleJob schema is built at runtime so jobs can be encoded through
// dynamicpb. Only the task kinds below are known; a job using any other kind
// fails to encode instead of reaching the gateway half empty.
//
// Task oneof numbers:
//
//	http 1, jsonParse 2, median 4, mean 5, divide 7, multiply 8,
//	conditional 11, value 12, max 13, regexExtract 14, add 16,
//	subtract 17, pow 20, cache 34, round 40, bound 41
const (
	jobPackage = "oracle_job"
	jobMessage = "OracleJob"
)

type fieldType = descriptorpb.FieldDescriptorProto_Type

const (
	tDouble  = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
	tInt32   = descriptorpb.FieldDescriptorProto_TYPE_INT32
	tString  = descriptorpb.FieldDescriptorProto_TYPE_STRING
	tMessage = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	tEnum    = descriptorpb.FieldDescriptorProto_TYPE_ENUM
)

var jobDescriptor = sync.OnceValues(func() (protoreflect.MessageDescriptor, error) {
	fd, err := protodesc.NewFile(jobFile(), new(protoregistry.Files))
	if err != nil {
		return nil, err
	}
	return fd.Messages().ByName(jobMessage), nil
})

func typeName(path string) string {
	return "." + jobPackage + "." + jobMessage + path
}

func field(name string, num int32, t fieldType) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Type:   t.Enum(),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
	}
}

func ref(name string, num int32, t fieldType, target string) *descriptorpb.FieldDescriptorProto {
	f := field(name, num, t)
	f.TypeName = proto.String(target)
	return f
}

func repeated(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

// withOneof puts every field of m into a single oneof named name.
func withOneof(m *descriptorpb.DescriptorProto, name string) *descriptorpb.DescriptorProto {
	m.OneofDecl = []*descriptorpb.OneofDescriptorProto{{Name: proto.String(name)}}
	for _, f := range m.Field {
		f.OneofIndex = proto.Int32(0)
	}
	return m
}

func enum(name string, values ...string) *descriptorpb.EnumDescriptorProto {
	e := &descriptorpb.EnumDescriptorProto{Name: proto.String(name)}
	for i, v := range values {
		e.Value = append(e.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(v),
			Number: proto.Int32(int32(i)),
		})
	}
	return e
}

// operand is the shared shape of the arithmetic tasks.
func operand(name, oneof string) *descriptorpb.DescriptorProto {
	return withOneof(message(name,
		field("scalar", 1, tDouble),
		field("aggregator_pubkey", 2, tString),
		ref("job", 3, tMessage, typeName("")),
		field("big", 4, tString),
	), oneof)
}

// reduce is the shared shape of the aggregating tasks.
func reduce(name string, extra ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	fields := []*descriptorpb.FieldDescriptorProto{
		repeated(ref("tasks", 1, tMessage, typeName(".Task"))),
		repeated(ref("jobs", 2, tMessage, typeName(""))),
	}
	return message(name, append(fields, extra...)...)
}

func jobFile() *descriptorpb.FileDescriptorProto {
	http := message("HttpTask",
		field("url", 1, tString),
		ref("method", 2, tEnum, typeName(".HttpTask.Method")),
		repeated(ref("headers", 3, tMessage, typeName(".HttpTask.Header"))),
		field("body", 4, tString),
	)
	http.NestedType = []*descriptorpb.DescriptorProto{
		message("Header", field("key", 1, tString), field("value", 2, tString)),
	}
	http.EnumType = []*descriptorpb.EnumDescriptorProto{
		enum("Method", "METHOD_UNKOWN", "METHOD_GET", "METHOD_POST"),
	}

	jsonParse := message("JsonParseTask",
		field("path", 1, tString),
		ref("aggregation_method", 2, tEnum, typeName(".JsonParseTask.AggregationMethod")),
	)
	jsonParse.EnumType = []*descriptorpb.EnumDescriptorProto{
		enum("AggregationMethod", "NONE", "MIN", "MAX", "SUM", "MEAN", "MEDIAN"),
	}

	cache := message("CacheTask",
		repeated(ref("cache_items", 1, tMessage, typeName(".CacheTask.CacheItem"))),
	)
	cache.NestedType = []*descriptorpb.DescriptorProto{
		message("CacheItem", field("variable_name", 1, tString), ref("job", 2, tMessage, typeName(""))),
	}

	round := message("RoundTask",
		ref("method", 1, tEnum, typeName(".RoundTask.Method")),
		field("decimals", 2, tInt32),
	)
	round.EnumType = []*descriptorpb.EnumDescriptorProto{
		enum("Method", "METHOD_ROUND_UP", "METHOD_ROUND_DOWN"),
	}

	task := func(name string, num int32, msg string) *descriptorpb.FieldDescriptorProto {
		return ref(name, num, tMessage, typeName("."+msg))
	}

	nested := []*descriptorpb.DescriptorProto{
		http,
		jsonParse,
		reduce("MedianTask", field("min_successful_required", 3, tInt32), field("max_range_percent", 4, tString)),
		reduce("MeanTask"),
		reduce("MaxTask"),
		withOneof(message("ValueTask",
			field("value", 1, tDouble),
			field("aggregator_pubkey", 2, tString),
			field("big", 3, tString),
		), "Value"),
		operand("MultiplyTask", "Multiple"),
		operand("DivideTask", "Denominator"),
		operand("AddTask", "Addition"),
		operand("SubtractTask", "Subtraction"),
		withOneof(message("PowTask",
			field("scalar", 1, tDouble),
			field("aggregator_pubkey", 2, tString),
			field("big", 3, tString),
		), "Exponent"),
		message("RegexExtractTask", field("pattern", 1, tString), field("group_number", 2, tInt32)),
		message("ConditionalTask",
			repeated(task("attempt", 1, "Task")),
			repeated(task("on_failure", 2, "Task")),
		),
		cache,
		round,
		message("BoundTask",
			ref("lower_bound", 1, tMessage, typeName("")),
			field("lower_bound_value", 2, tString),
			ref("upper_bound", 3, tMessage, typeName("")),
			field("upper_bound_value", 4, tString),
			ref("on_exceeds_upper_bound", 5, tMessage, typeName("")),
			field("on_exceeds_upper_bound_value", 6, tString),
			ref("on_exceeds_lower_bound", 7, tMessage, typeName("")),
			field("on_exceeds_lower_bound_value", 8, tString),
		),
		withOneof(message("Task",
			task("http_task", 1, "HttpTask"),
			task("json_parse_task", 2, "JsonParseTask"),
			task("median_task", 4, "MedianTask"),
			task("mean_task", 5, "MeanTask"),
			task("divide_task", 7, "DivideTask"),
			task("multiply_task", 8, "MultiplyTask"),
			task("conditional_task", 11, "ConditionalTask"),
			task("value_task", 12, "ValueTask"),
			task("max_task", 13, "MaxTask"),
			task("regex_extract_task", 14, "RegexExtractTask"),
			task("add_task", 16, "AddTask"),
			task("subtract_task", 17, "SubtractTask"),
			task("pow_task", 20, "PowTask"),
			task("cache_task", 34, "CacheTask"),
			task("round_task", 40, "RoundTask"),
			task("bound_task", 41, "BoundTask"),
		), "Task"),
	}

	job := message(jobMessage,
		repeated(ref("tasks", 1, tMessage, typeName(".Task"))),
		field("weight", 2, tInt32),
	)
	job.NestedType = nested

	return &descriptorpb.FileDescriptorProto{
		Name:        proto.String("oracle_job.proto"),
		Package:     proto.String(jobPackage),
		Syntax:      proto.String("proto2"),
		MessageType: []*descriptorpb.DescriptorProto{job},
	}
}
